package srv

// Version is the current version of the srv library and CLI
const Version = "0.3.0"
