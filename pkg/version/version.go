package version

// Version is the current version of the conversation analyzer
const Version = "0.1.0"

// UserAgent returns the User-Agent string for outbound requests
func UserAgent() string {
	return "conversation-analyzer/" + Version
}

// ServerHeader returns the Server header value for HTTP responses
func ServerHeader() string {
	return "conversation-analyzer/" + Version
}
