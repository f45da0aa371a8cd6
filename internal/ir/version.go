package ir

// Version is the histcache release reported by the CLI.
const Version = "0.1.0"
