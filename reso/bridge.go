package reso

import "log/slog"

// NewBridge builds a client for the Bridge Interactive aggregation API.
// The server ID scopes which MLS dataset the account reads from.
func NewBridge(creds Credentials, log *slog.Logger) (*Client, error) {
	cfg, _ := BuiltinConfig(ProviderBridge)
	return NewClient(cfg, creds, log)
}

// prepareBridge scopes searches to the account's originating system and
// fills in the standard projection when the caller asked for nothing
// specific. Callers that set either explicitly win.
func (c *Client) prepareBridge(q *Query) {
	if c.creds.ServerID != "" {
		if _, ok := q.Filters["OriginatingSystemName"]; !ok {
			q.Filters["OriginatingSystemName"] = c.creds.ServerID
		}
	}
	if len(q.Select) == 0 {
		q.Select = StandardPropertyFields
	}
}
