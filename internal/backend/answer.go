package backend

// DefaultCode is the static code the answering service expects in every
// request. Its meaning is not documented by the service.
const DefaultCode = "test123"

// AnswerRequest represents the request body for the answer endpoint
type AnswerRequest struct {
	Question string `json:"question"`
	UserID   string `json:"user_id"`
	Code     string `json:"code"`
}

// AnswerResponse represents the response from the answer endpoint.
// Only the answer is consumed; other fields are ignored.
type AnswerResponse struct {
	Answer *string `json:"answer"`
}
