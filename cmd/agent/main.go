package main

import (
	"bufio"
	"context"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"garantia-push/config"
	"garantia-push/models"
	"garantia-push/orchestrator"
	"garantia-push/platform"
	"garantia-push/prompt"
	"garantia-push/pushclient"
	"garantia-push/store"
	"garantia-push/transport"
	"garantia-push/worker"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	config.Load()
	cfg := config.AppConfig.Agent

	st, err := store.Open(cfg.StateDBPath)
	if err != nil {
		log.Fatal("Failed to open agent state store:", err)
	}
	defer st.Close()

	// An AUTH_TOKEN in the environment replaces the stored session token,
	// the same way logging in replaces it in the original app.
	if cfg.AuthToken != "" {
		if err := st.SetToken(cfg.AuthToken); err != nil {
			log.Printf("⚠️ Could not persist session token: %v", err)
		}
	}

	supported := func() bool { return cfg.PushServiceURL != "" }
	perms := platform.NewStorePermissions(st, supported, func(ctx context.Context) models.PermissionState {
		// the terminal prompt already carried the user's consent; accepting
		// it is the platform grant
		return models.PermissionGranted
	})

	notifications := platform.NewMemoryNotificationCenter()
	windows := platform.NewMemoryWindowClients(openInBrowser(cfg.APIURL))

	pushManager := transport.NewClient(cfg.PushServiceURL, st)
	defer pushManager.Close()

	client := pushclient.NewClient(cfg.APIURL, cfg.HTTPTimeout, func() string {
		token, err := st.Token()
		if err != nil {
			return ""
		}
		return token
	}, perms, pushManager)

	ctx, cancel := context.WithCancel(context.Background())

	pushWorker := worker.New(notifications, windows)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		pushWorker.Run(ctx, pushManager.Events(), notifications.Clicks())
	}()

	var orch *orchestrator.Orchestrator
	var permissionPrompt *prompt.Prompt
	orch = orchestrator.New(perms, st, client.Register, cfg.RecheckEvery, func() {
		showPrompt(ctx, permissionPrompt)
	})
	permissionPrompt = prompt.New(orch.Gate(), perms, client.Register)

	orch.Start()
	defer orch.Stop()

	// Startup trigger: only when a session exists.
	if token, err := st.Token(); err == nil && token != "" {
		if result := orch.Ensure(ctx); result.ShowModal {
			showPrompt(ctx, permissionPrompt)
		}
	} else {
		log.Println("ℹ️ No session token; push registration waits for login")
	}

	// SIGUSR1 is the "app regained focus" trigger; SIGINT/SIGTERM stop.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1)
	for sig := range signals {
		if sig == syscall.SIGUSR1 {
			orch.Resume()
			continue
		}
		break
	}

	log.Println("🛑 Shutting down, waiting for in-flight notifications")
	cancel()
	<-workerDone
}

// showPrompt renders the permission question on the terminal. The gate is
// re-checked first: another trigger may have dismissed the prompt already.
func showPrompt(ctx context.Context, p *prompt.Prompt) {
	if p == nil || !p.ShouldShow() {
		return
	}

	log.Printf("%s", prompt.Title)
	log.Printf("%s", prompt.Description)
	log.Printf("¿Activar notificaciones? [s/N]: ")

	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		p.Decline()
		return
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "si", "sí", "y", "yes":
		p.Accept(ctx)
	default:
		p.Decline()
	}
}

// openInBrowser launches application URLs with the system opener. Relative
// paths (the app root "/") resolve against the API base URL.
func openInBrowser(apiURL string) func(url string) error {
	return func(url string) error {
		target := url
		if !strings.HasPrefix(target, "http") {
			target = strings.TrimSuffix(apiURL, "/") + url
		}
		return exec.Command("xdg-open", target).Start()
	}
}
