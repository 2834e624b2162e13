// Package fusionbridge exposes a CAD/CAM application's in-process data
// model to external tools over a localhost TCP socket.
//
// The host application's SDK may only be called from one designated
// main thread, while clients connect concurrently on arbitrary
// background connections. The bridge accepts newline-delimited JSON
// requests, marshals each one onto the main thread exclusively, waits
// for the result, and answers with a uniform {success, data|error}
// envelope.
//
// # Running a bridge
//
//	bridge := fusionbridge.New(
//	    fusionbridge.WithLogger(slog.Default()),
//	    fusionbridge.WithMarshaler(hostEvents), // the host's custom-event primitive
//	    fusionbridge.WithHostModule(camModule),
//	)
//	if err := bridge.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer bridge.Close()
//
// When no Marshaler is supplied the bridge runs its own main-loop
// goroutine, which is what examples and headless hosts use.
//
// # Calling the bridge
//
//	err := fusionbridge.WithClient(func(c *fusionbridge.Client) error {
//	    env, err := c.Execute(`result = cam.setup_count()`, nil)
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(env.Data)
//	    return nil
//	})
//
// Requests carry either a registered handler name or a Lua script as
// their code; scripts define a run(params) function or assign to the
// result global. The default port is 9876, overridable with the
// FUSION_CAM_MCP_PORT environment variable.
package fusionbridge
