package domain

// ConversationRequest is one exchange with the conversation service.
type ConversationRequest struct {
	// Question is the user's message.
	Question string

	// Context is search results rendered by FormatContext.
	Context string
}

// ConversationResponse is the reply to a ConversationRequest.
type ConversationResponse struct {
	Answer string
	Model  string
}
