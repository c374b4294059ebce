package cmd

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"clipstream/config"
	"clipstream/repository"
)

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "run database migrations",
		Run: func(cmd *cobra.Command, args []string) {
			repo := repository.NewRepo(config.DB)
			if err := repo.AutoMigrate(); err != nil {
				log.Fatal().Err(err).Msg("migration failed")
			}
			log.Info().Msg("migration complete")
		},
	}
}
