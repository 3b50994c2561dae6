package context

type Key string

const (
	Claims Key = "claims"
	APIKey Key = "api_key"
	Params Key = "params"
)
