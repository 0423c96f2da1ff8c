package models

// ChatFunctionPath is where the chat function is mounted.
const ChatFunctionPath = "/functions/v1/chat-with-gemini"

// ChatRequest is the chat function's JSON body.
type ChatRequest struct {
	Message       string `json:"message"`
	GenerateImage bool   `json:"generateImage"`
}

// ChatResponse is the chat function's success body. ImageURL is set in
// image mode only.
type ChatResponse struct {
	Response string `json:"response"`
	ImageURL string `json:"imageUrl,omitempty"`
}
