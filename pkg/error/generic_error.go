package error

// GenericError is implemented by errors that carry their own HTTP mapping.
// The REST recovery middleware uses it to translate panics into responses.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
