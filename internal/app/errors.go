package app

import "errors"

var (
	// ErrCredentialsRequired is returned when username or password is blank.
	ErrCredentialsRequired = errors.New("username and password required")

	// ErrUsernameTaken is returned on registration with an existing username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials is shown to end users on failed login and must not
	// enable account enumeration.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrConversationNotFound is returned when no conversation matches.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationForbidden is returned when a conversation exists but is
	// owned by another user.
	ErrConversationForbidden = errors.New("conversation access denied")

	// ErrSubjectNotFound covers both a missing subject and one owned by
	// another user; the two are indistinguishable to the caller.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrQuizNotFound is returned when no stored quiz matches the submission.
	ErrQuizNotFound = errors.New("quiz not found")

	// ErrNotesRequired is returned when quiz generation is requested without
	// the notes text it must be seeded from.
	ErrNotesRequired = errors.New("notes were not provided for quiz generation")

	// ErrSyllabusNotPDF rejects syllabus uploads that are not PDF files.
	ErrSyllabusNotPDF = errors.New("invalid file type, please upload a PDF")

	// ErrMalformedModelOutput is returned when the completion service answers
	// with JSON that fails shape validation.
	ErrMalformedModelOutput = errors.New("completion service returned malformed output")
)
