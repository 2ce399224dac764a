package auth

// OAuth scopes understood by the micro-action API.
const (
	ScopeMicroActionsRead  = "micro_actions:read"
	ScopeMicroActionsWrite = "micro_actions:write"
)
