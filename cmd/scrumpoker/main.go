package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/folkengine/goname"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/scrumpoker/scrumpoker/api"
	"github.com/scrumpoker/scrumpoker/config"
	"github.com/scrumpoker/scrumpoker/globals"
	"github.com/scrumpoker/scrumpoker/persistence"
	"github.com/scrumpoker/scrumpoker/room"
	"github.com/scrumpoker/scrumpoker/sweep"
	"github.com/scrumpoker/scrumpoker/ws"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func main() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()
	log.SetFlags(0)

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}

	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister == nil {
		panic("no persistence configured")
	}
	defer persister.Close()

	manager := room.NewManager(persister, globalConfig)
	hub := ws.NewHub(globalConfig, manager)
	go hub.Run()

	sweeper := sweep.New(manager, hub)
	cronRunner, err := sweeper.Start(globalConfig.SweepConfig.TimerSpec, globalConfig.SweepConfig.CleanupSpec)
	if err != nil {
		panic(err)
	}

	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		cronRunner.Stop()
		persister.Close()
		os.Exit(0)
	}()

	router := mux.NewRouter()
	api.NewHandler(manager).Routes(router)
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocketHandler(hub, w, r)
	}).Methods(http.MethodGet)
	http.Handle("/", router)

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

// Handle incoming websockets
func websocketHandler(hub *ws.Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	// When this frame returns close the Websocket
	defer conn.Close() //nolint

	doneChan := make(chan struct{})

	// the display-name default if the join event carries no username
	guestName := r.URL.Query().Get("username")
	if guestName == "" {
		guestName = goname.New(goname.FantasyMap).FirstLast() + " (guest)"
	}

	client := ws.NewClient(hub, conn, guestName, doneChan)

	// Add to the hub; wait until the registration was actually processed so
	// the following loops only run on a registered client.
	client.Add(1)
	hub.Register <- client
	client.Wait()
	defer func() {
		hub.Unregister <- client
	}()

	client.Add(2)
	go client.ReadLoop()
	go client.WriteLoop()

	<-doneChan
}
