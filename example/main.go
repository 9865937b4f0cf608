// FILE: example/main.go
package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/lixenwraith/phaseconf"
)

// DatabaseConfig is fixed when the application is built
type DatabaseConfig struct {
	Driver   string `toml:"driver" pattern:"postgres|sqlite"`
	MaxConns int    `toml:"max_conns" min:"1" max:"100"`
}

// ServerConfig is read at startup and on every reload
type ServerConfig struct {
	Host        string            `toml:"host"`
	Port        int               `toml:"port" min:"1" max:"65535"`
	ReadTimeout time.Duration     `toml:"read_timeout"`
	Headers     map[string]string `toml:"headers"`
	TLS         *TLSConfig        `toml:"tls"`
}

// TLSConfig is created only when one of its keys is set
type TLSConfig struct {
	CertFile string `toml:"cert_file" required:"true"`
	KeyFile  string `toml:"key_file" required:"true"`
}

const initialConfig = `
[app.database]
driver = "postgres"

[app.server]
host = "0.0.0.0"

[app.server.headers]
x-frame-options = "DENY"
`

func main() {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	dir, err := os.MkdirTemp("", "phaseconf-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(initialConfig), 0600); err != nil {
		log.Fatal(err)
	}

	// Env overrides the file
	os.Setenv("APP_SERVER_PORT", "8888")

	rt, err := phaseconf.NewBuilder().
		WithKeyPrefix("app").
		WithStruct("database", phaseconf.PhaseBuildAndRunTimeFixed, DatabaseConfig{Driver: "sqlite", MaxConns: 10}).
		WithStruct("server", phaseconf.PhaseRunTime, ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 5 * time.Second}).
		WithFile(path).
		WithArgs(nil).
		WithLogger(logger).
		WithValidator(func(rt *phaseconf.Runtime) error {
			port, err := rt.Int64("server.port")
			if err != nil {
				return err
			}
			if port < 1024 {
				return errors.New("server.port must not be a privileged port")
			}
			return nil
		}).
		Build()
	if err != nil && !phaseconf.IsConfigNotFound(err) {
		log.Fatalf("build failed: %v", err)
	}

	var server ServerConfig
	if err := rt.Scan("server", &server); err != nil {
		log.Fatal(err)
	}
	log.Printf("server %s:%d headers=%v tls=%v", server.Host, server.Port, server.Headers, server.TLS != nil)

	rt.AutoUpdateWithOptions(phaseconf.WatchOptions{
		PollInterval: 250 * time.Millisecond,
		Debounce:     100 * time.Millisecond,
	})
	defer rt.StopAutoUpdate()
	events := rt.Watch()

	// An invalid edit keeps the last good graph; a valid one replaces it
	go func() {
		time.Sleep(time.Second)
		_ = os.WriteFile(path, []byte(initialConfig+"\n[app.server.tls]\ncert_file = \"server.crt\"\n"), 0600)
		time.Sleep(time.Second)
		_ = os.WriteFile(path, []byte(initialConfig+"\n[app.server.tls]\ncert_file = \"server.crt\"\nkey_file = \"server.key\"\n"), 0600)
	}()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			switch ev.Kind {
			case phaseconf.EventReloadFailed:
				log.Printf("reload rejected, still serving %s:\n%v", rt.Graph(phaseconf.PhaseRunTime).Generation(), ev.Err)
			case phaseconf.EventReloaded:
				cert, _ := rt.String("server.tls.cert_file")
				log.Printf("reloaded generation %s, changed %v, cert %s", ev.Generation, ev.Changed, cert)
				return
			default:
				log.Printf("watch event: %s", ev.Kind)
			}
		case <-timeout:
			log.Println("no reload observed")
			return
		}
	}
}
