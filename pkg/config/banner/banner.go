package banner

import (
	"fmt"
	"io"
	"os"

	"wolfie/pkg/config"
)

const banner = `
██╗    ██╗ ██████╗ ██╗     ███████╗██╗███████╗
██║    ██║██╔═══██╗██║     ██╔════╝██║██╔════╝
██║ █╗ ██║██║   ██║██║     █████╗  ██║█████╗
██║███╗██║██║   ██║██║     ██╔══╝  ██║██╔══╝
╚███╔███╔╝╚██████╔╝███████╗██║     ██║███████╗
 ╚══╝╚══╝  ╚═════╝ ╚══════╝╚═╝     ╚═╝╚══════╝
`

// PrintWithEff prints the banner to stdout.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	Fprint(os.Stdout, eff, version)
}

// Fprint writes the startup banner with a production readiness checklist.
func Fprint(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	addr := eff.Addr
	if addr == "" {
		addr = cfg.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", addr)
	fmt.Fprintf(w, "DB Path:  %s\n", eff.DBPath)
	fmt.Fprintf(w, "RAG:      %s\n", cfg.RAG.URL)
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config: %s\n", src)

	fmt.Fprintln(w, "\n== Production? =================================================")
	if n := len(cfg.Security.SigningKeys); n > 0 {
		fmt.Fprintf(w, "- Signing keys: OK (%d)\n", n)
	} else {
		fmt.Fprintln(w, "- Signing keys: MISSING (nobody can sign in)")
	}
	if n := len(cfg.Security.APIKeys.Admin); n > 0 {
		fmt.Fprintf(w, "- Admin API keys: OK (%d)\n", n)
	} else {
		fmt.Fprintln(w, "- Admin API keys: MISSING (required for metrics and pprof)")
	}
	if cfg.Storage.Project != "" && cfg.Storage.APIKey != "" {
		fmt.Fprintf(w, "- Storage: OK (project %s)\n", cfg.Storage.Project)
	} else {
		fmt.Fprintln(w, "- Storage: MISSING (file downloads will fail)")
	}
	if cfg.Server.TLS.CertFile != "" {
		fmt.Fprintln(w, "- TLS: enabled")
	} else if cfg.Security.CookieSecure {
		fmt.Fprintln(w, "- TLS: terminated upstream (secure cookies)")
	} else {
		fmt.Fprintln(w, "- TLS: disabled (session cookies sent in clear)")
	}
	if cfg.Retention.Enabled {
		fmt.Fprintf(w, "- Session retention: enabled (cron=%s)\n", cfg.Retention.Cron)
	} else {
		fmt.Fprintln(w, "- Session retention: disabled")
	}
}
