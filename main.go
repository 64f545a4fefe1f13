package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/kwhite/reclaim/internal/auth"
	"github.com/kwhite/reclaim/internal/handlers"
	"github.com/kwhite/reclaim/internal/middleware"
	"github.com/kwhite/reclaim/internal/store/sqlstore"
	"github.com/kwhite/reclaim/internal/ws"
)

var (
	addr   = flag.String("addr", ":8080", "http service address")
	driver = flag.String("db-driver", "sqlite3", "database driver (sqlite3 or postgres)")
	dsn    = flag.String("db-dsn", "reclaim.db", "database connection string")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Optional .env for local development; real deployments set the
	// environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("loading .env: %v", err)
	}
	if secret := os.Getenv("RECLAIM_SECRET"); secret != "" {
		auth.SecretKey = []byte(secret)
	}
	if envDSN := os.Getenv("RECLAIM_DSN"); envDSN != "" {
		*dsn = envDSN
	}
	if envDriver := os.Getenv("RECLAIM_DB_DRIVER"); envDriver != "" {
		*driver = envDriver
	}

	store, err := sqlstore.New(*driver, *dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	hub := ws.NewHub()
	go hub.Run()

	authHandler := &handlers.AuthHandler{Store: store}
	itemHandler := &handlers.ItemHandler{Store: store}
	messagingHandler := &handlers.MessagingHandler{Store: store}

	sendLimiter := middleware.NewLimiterStore(60, 10, 5*time.Minute)
	defer sendLimiter.Stop()

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/login", authHandler.Login).Methods("POST")

	// Everything below requires an authenticated identity.
	api := r.NewRoute().Subrouter()
	api.Use(middleware.AuthMiddleware)

	api.HandleFunc("/items", itemHandler.CreateItem).Methods("POST")
	api.HandleFunc("/items", itemHandler.ListItems).Methods("GET")
	api.HandleFunc("/items/{id}", itemHandler.GetItem).Methods("GET")
	api.HandleFunc("/items/{id}/chat", messagingHandler.StartChat).Methods("POST")

	api.HandleFunc("/inbox", messagingHandler.Inbox).Methods("GET")
	api.HandleFunc("/conversations/{id}/messages", messagingHandler.GetMessages).Methods("GET")
	api.Handle("/conversations/{id}/messages",
		middleware.RateLimitMiddleware(sendLimiter)(http.HandlerFunc(messagingHandler.SendMessage)),
	).Methods("POST")

	api.HandleFunc("/ws/chat/{id}", func(w http.ResponseWriter, r *http.Request) {
		conversationID, err := strconv.Atoi(mux.Vars(r)["id"])
		if err != nil {
			http.Error(w, "Invalid conversation id", http.StatusBadRequest)
			return
		}
		ws.ServeChatWs(hub, store, w, r, middleware.UserID(r), conversationID)
	})
	api.HandleFunc("/ws/notifications", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeNotifyWs(hub, w, r, middleware.UserID(r))
	})

	log.Println("Starting server on", *addr)
	log.Fatal(http.ListenAndServe(*addr, r))
}
