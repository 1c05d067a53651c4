package core

import "fmt"

// ProtocolViolation describes a malformed or unexpected line from the
// authority. It is never fatal to the connection by itself; it is only
// reported to operators via OperatorNotify.
type ProtocolViolation struct {
	Command string
	Detail  string
	Err     error
}

func (v *ProtocolViolation) Error() string {
	return fmt.Sprintf("iauth protocol violation: %s: %v (%s)", v.Command, v.Err, v.Detail)
}

func (v *ProtocolViolation) Unwrap() error {
	return v.Err
}
