package proto

import "errors"

// Errors returned by the Decode* helpers. Core turns these into
// ProtocolViolation reports rather than disconnecting.
var (
	ErrBadArity = errors.New("wrong number of arguments")
	ErrEmptyArg = errors.New("required argument is empty")
)

// Parse tokenizes a raw line into a command name and its arguments. The
// command name is returned as-is (dispatch compares it case-insensitively).
// An empty line yields an empty command and nil args.
func Parse(line string) (cmd string, args []string) {
	toks := Tokenize(line)
	if len(toks) == 0 {
		return "", nil
	}
	return toks[0], toks[1:]
}

// Greeting builds the first outbound line of a handshake: "Server <name>"
// or, when a password is configured, "Server <name> <password>".
func Greeting(serverName, password string) string {
	if password == "" {
		return "Server " + serverName
	}
	return "Server " + serverName + " " + password
}

// EndUsersLine marks the end of an existing-user announcement.
const EndUsersLine = "EndUsers"

// FullAuth is the authorization request sent for one pending client.
type FullAuth struct {
	ID   string
	Nick string
	User string
	Host string
	IP   string
	Pass string
	Info string
}

// Encode renders the FullAuth line:
// "FullAuth <id> <nick> <user> <host> <ip> <pass> :<info>".
func (f FullAuth) Encode() string {
	return "FullAuth " + f.ID + " " + f.Nick + " " + f.User + " " + f.Host + " " + f.IP + " " + f.Pass + " :" + f.Info
}

// ExitUser cancels a pending or completed check.
type ExitUser struct {
	ID string
}

// Encode renders the ExitUser line: "ExitUser <id>".
func (e ExitUser) Encode() string {
	return "ExitUser " + e.ID
}

// DoneAuth is the authority's verdict that a client is authorized.
type DoneAuth struct {
	ID         string
	Username   string
	Hostname   string
	Class      string
	Account    string
	HasAccount bool
}

// DecodeDoneAuth parses the arguments following a "DoneAuth" command name
// (i.e. args does not include "DoneAuth" itself). The wire arity is
// expressed in spec.md as "5 args" counting the command token, so at least
// 4 entries are required here: id, username, hostname, class. A 5th,
// optional entry is the account name.
func DecodeDoneAuth(args []string) (DoneAuth, error) {
	if len(args) < 4 {
		return DoneAuth{}, ErrBadArity
	}
	d := DoneAuth{
		ID:       args[0],
		Username: args[1],
		Hostname: args[2],
		Class:    args[3],
	}
	if len(args) > 4 {
		d.Account = args[4]
		d.HasAccount = true
	}
	return d, nil
}

// BadAuth is the authority's verdict that a client must be rejected.
type BadAuth struct {
	ID     string
	Reason string
}

// DecodeBadAuth parses the arguments following a "BadAuth" command name.
// spec.md's "3 args" again counts the command token, so 2 entries are
// required here: id and reason. An empty reason is itself a violation.
func DecodeBadAuth(args []string) (BadAuth, error) {
	if len(args) < 2 {
		return BadAuth{}, ErrBadArity
	}
	if args[1] == "" {
		return BadAuth{}, ErrEmptyArg
	}
	return BadAuth{ID: args[0], Reason: args[1]}, nil
}
