package main

import (
	"embed"
	"log/slog"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"go.aimuz.me/glance/internal/app"
)

//go:embed all:frontend/dist
var assets embed.FS

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.Info("starting app", "version", version, "commit", commit, "date", date)
	svc := app.New(version)

	wailsApp := application.New(application.Options{
		Name:        "Glance",
		Description: "Voice and vision assistant that points at your screen",
		Services: []application.Service{
			application.NewService(svc),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// The overlay hides between sessions; the tray keeps the app alive.
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	// Full-screen transparent overlay for marks and transcripts.
	overlay := wailsApp.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:          "Glance",
		Width:          1280,
		Height:         800,
		URL:            "/",
		Frameless:      true,
		AlwaysOnTop:    true,
		Hidden:         true,
		BackgroundType: application.BackgroundTypeTransparent,
		Mac: application.MacWindow{
			Backdrop: application.MacBackdropTransparent,
		},
		DevToolsEnabled: version == "dev",
	})

	overlay.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		svc.StopSession()
		overlay.Hide()
	})

	svc.Init(wailsApp, overlay)

	tray := wailsApp.SystemTray.New()
	tray.SetLabel("Glance")

	menu := wailsApp.NewMenu()
	menu.Add("Start / Stop").OnClick(func(*application.Context) {
		go func() {
			if err := svc.ToggleSession(); err != nil {
				slog.Error("toggle from tray", "error", err)
			}
		}()
	})
	menu.Add("Show Overlay").OnClick(func(*application.Context) {
		overlay.Show()
		overlay.Focus()
	})
	menu.Add("Clear Marks").OnClick(func(*application.Context) {
		if err := svc.ClearMarks(); err != nil {
			slog.Error("clear from tray", "error", err)
		}
	})

	profiles := menu.AddSubmenu("Assistant")
	active := svc.GetActiveProfile()
	for _, p := range svc.GetProfiles() {
		id := p.ID
		profiles.AddRadio(p.Name, active != nil && active.ID == id).OnClick(func(*application.Context) {
			if err := svc.SetProfileActive(id); err != nil {
				slog.Error("set profile active", "error", err)
			}
		})
	}

	menu.AddSeparator()
	menu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(*application.Context) {
			svc.Shutdown()
			wailsApp.Quit()
		})
	tray.SetMenu(menu)

	if err := wailsApp.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}
