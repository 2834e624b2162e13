package fusionbridge

// WithClient manages client lifecycle with automatic cleanup.
//
// This helper creates a client, executes the callback, and ensures the
// connection is released via Close when done, so callers cannot leak
// the socket. The callback's error is returned to the caller.
//
// Example usage:
//
//	err := fusionbridge.WithClient(func(c *fusionbridge.Client) error {
//	    env, err := c.Ping()
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(env.Data)
//	    return nil
//	}, fusionbridge.WithPort(9876))
func WithClient(fn func(*Client) error, opts ...Option) error {
	client := NewClient(opts...)
	defer func() {
		_ = client.Close()
	}()

	return fn(client)
}
