package cli

import (
	"bufio"
	"context"
	"database/sql"
	"os"

	"github.com/securetask/authkit/internal/client/config"
	"github.com/securetask/authkit/internal/client/gateway"
	"github.com/securetask/authkit/internal/client/models"
	"github.com/securetask/authkit/internal/client/repositories/sessionrecord"
	"github.com/securetask/authkit/internal/client/session"
	"github.com/securetask/authkit/internal/client/storage"
	"github.com/securetask/authkit/internal/client/verification"
	"github.com/securetask/authkit/internal/logging"

	_ "modernc.org/sqlite"
)

// App holds the wired client: the session store, the two OTP flows, and the
// interactive reader. One instance per process.
type App struct {
	config   *config.Config
	gw       gateway.Gateway
	sessions *session.Store
	verify   *verification.Flow
	reset    *verification.Flow
	log      logging.Logger
	db       *sql.DB
	reader   *bufio.Reader
}

// NewApp wires the client from configuration: local database, HTTP gateway,
// session store and verification flows.
func NewApp(ctx context.Context, c *config.Config, log logging.Logger) (*App, error) {
	db, err := storage.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		log.Error(ctx, "error initializing database", "error", err)
		return nil, err
	}

	gw := gateway.NewHTTPGateway(c.ServerBaseURL, c.RequestTimeout, log)
	sessions := session.NewStore(gw, sessionrecord.NewSQLiteRepository(db), log)

	return &App{
		config:   c,
		gw:       gw,
		sessions: sessions,
		verify:   verification.NewFlow(verification.PurposeRegistrationVerify, gw, sessions, log),
		reset:    verification.NewFlow(verification.PurposePasswordReset, gw, sessions, log),
		log:      log,
		db:       db,
		reader:   bufio.NewReader(os.Stdin),
	}, nil
}

// Run restores the persisted session and enters the REPL. It blocks until the
// user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	if _, err := a.sessions.Restore(ctx); err != nil {
		// The store already settled to a usable state; the user can log
		// in again if the restore did not stick.
		a.log.Warn(ctx, "session restore failed", "error", err)
	}

	a.Root(ctx)
}

// Close releases the flows, the gateway and the database.
func (a *App) Close() {
	a.verify.Close()
	a.reset.Close()
	if err := a.gw.Close(); err != nil {
		a.log.Warn(context.Background(), "error closing gateway", "error", err)
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn(context.Background(), "error closing database", "error", err)
		}
	}
}

func (a *App) isLoggedIn() bool {
	return a.sessions.Session().Status == models.StatusAuthenticated
}
