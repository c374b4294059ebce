package constant

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

type StorageBackend string

const (
	StorageBackendFS    StorageBackend = "fs"
	StorageBackendMinio StorageBackend = "minio"
)

func (b StorageBackend) String() string {
	return string(b)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)
