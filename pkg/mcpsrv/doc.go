// Package mcpsrv runs formsense as an MCP server.
//
// The server exposes five tools: formsense_discover_backends and
// formsense_check_backend find a local Ollama or LM Studio server,
// formsense_analyze_form classifies fields with pattern heuristics,
// formsense_classify_fields asks the model about the weak ones, and
// formsense_merge_suggestions folds the answers back in. Health results are
// recorded in a SQLite file and served as formsense://backends resources.
//
//	server, err := mcpsrv.NewServer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Close()
//	if err := server.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Configuration comes from FORMSENSE_CONFIG and the environment. Options
// override logging and persistence:
//
//	server, err := mcpsrv.NewServer(
//	    mcpsrv.WithLogLevel("debug"),
//	    mcpsrv.WithLogFile("/var/log/formsense-mcp.log"),
//	    mcpsrv.WithDBPath("/var/lib/formsense/backends.db"),
//	)
//
// Custom tools, prompts and resources are added with [WithTool],
// [WithDepsTool], [WithPrompt], [WithResource] and [WithResourceTemplate].
// Tools registered this way go through [AddTool], which rejects output types
// that could marshal to JSON their own schema refuses.
package mcpsrv
