package adapter

import "github.com/brookline/iauth/pkg/iauth/core"

// DemoClient is a minimal, in-memory core.Client used by cmd/iauth-probe to
// exercise a connection without a real chat server behind it.
type DemoClient struct {
	name       string
	username   string
	realUser   string
	host       string
	sourceIP   string
	password   string
	info       string
	account    string
	hasAccount bool
	authorized bool
	req        core.RequestHandle
}

// NewDemoClient builds a DemoClient with the fields FullAuth sends.
func NewDemoClient(nick, user, sourceIP, password, gecos string) *DemoClient {
	return &DemoClient{name: nick, username: user, sourceIP: sourceIP, password: password, info: gecos}
}

func (c *DemoClient) Name() string                    { return c.name }
func (c *DemoClient) Username() string                { return c.username }
func (c *DemoClient) SetUsername(u string)             { c.username = u }
func (c *DemoClient) SetRealUsername(u string)         { c.realUser = u }
func (c *DemoClient) SetHost(h string)                 { c.host = h }
func (c *DemoClient) SourceIP() string                 { return c.sourceIP }
func (c *DemoClient) Password() string                 { return c.password }
func (c *DemoClient) Info() string                     { return c.info }
func (c *DemoClient) SetAccount(a string)              { c.account = a }
func (c *DemoClient) SetHasAccount(b bool)             { c.hasAccount = b }
func (c *DemoClient) SetAuthorized(b bool)             { c.authorized = b }
func (c *DemoClient) Request() core.RequestHandle      { return c.req }
func (c *DemoClient) SetRequest(h core.RequestHandle)  { c.req = h }

// Authorized reports whether DoneAuth has been received for this client.
func (c *DemoClient) Authorized() bool { return c.authorized }

// ResolvedHost, ResolvedUsername, and Account expose the fields the
// authority fills in, for the probe CLI to print once DoneAuth arrives.
func (c *DemoClient) ResolvedHost() string     { return c.host }
func (c *DemoClient) ResolvedUsername() string { return c.realUser }
func (c *DemoClient) Account() string          { return c.account }
