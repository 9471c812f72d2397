// persistence/postgresql.go
package persistence

import (
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/wfunc/gonu/logger"
)

// notifyChannel carries one JSON-encoded Change per committed session write.
const notifyChannel = "gonu_sessions"

// PostgresDSN builds a key/value connection string understood by both lib/pq
// and the GORM postgres driver.
func PostgresDSN(host string, port int, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)
}

// pgFeed turns LISTEN/NOTIFY into Hub publications so every server process
// sharing the database sees every session change.
type pgFeed struct {
	listener *pq.Listener
	hub      *Hub
	done     chan struct{}
}

func newPGFeed(dsn string, hub *Hub) (*pgFeed, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Log.Warnf("postgres listener event %d: %v", ev, err)
		}
	}
	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, report)
	if err := listener.Listen(notifyChannel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	f := &pgFeed{listener: listener, hub: hub, done: make(chan struct{})}
	go f.run()
	return f, nil
}

func (f *pgFeed) run() {
	for {
		select {
		case <-f.done:
			return
		case n := <-f.listener.Notify:
			f.handle(n)
		case <-time.After(90 * time.Second):
			go func() {
				if err := f.listener.Ping(); err != nil {
					logger.Log.Warnf("postgres listener ping: %v", err)
				}
			}()
		}
	}
}

func (f *pgFeed) handle(n *pq.Notification) {
	// nil 表示连接重建，期间的通知可能丢失
	if n == nil {
		logger.Log.Warn("postgres listener reconnected, resyncing subscribers")
		f.hub.Resync()
		return
	}
	c, err := decodeChange([]byte(n.Extra))
	if err != nil {
		logger.Log.Warnf("postgres notify: %v", err)
		return
	}
	f.hub.Publish(c)
}

func (f *pgFeed) Close() error {
	close(f.done)
	return f.listener.Close()
}
