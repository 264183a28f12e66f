package callflow

// Version is stamped at build time with -ldflags "-X github.com/ringwire/callflow.Version=...".
var Version = "dev"
