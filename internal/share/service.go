// Package share exposes the local engine over an ngrok tunnel so a remote
// reviewer can watch a preview session. Disabled by default; when an access
// key is configured every tunneled request must present it.
package share

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"framecut/internal/config"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"golang.ngrok.com/ngrok/v2"
)

// Service represents the remote preview tunnel service
type Service struct {
	config  *config.ShareConfig
	agent   ngrok.Agent
	tunnel  ngrok.EndpointForwarder
	keyHash []byte
}

// NewService creates a new share service instance. Returns nil when sharing
// is disabled in config.
func NewService(cfg *config.ShareConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	// Load .env file if it exists (for auth token)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Warning: Could not load .env file: %v", err)
		}
	}

	// Get auth token from environment variable if not set in config
	authToken := cfg.AuthToken
	if authToken == "" {
		authToken = os.Getenv("NGROK_AUTHTOKEN")
	}

	if authToken == "" {
		return nil, fmt.Errorf("ngrok auth token not found. Set NGROK_AUTHTOKEN in .env file or config")
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(authToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %v", err)
	}

	svc := &Service{
		config: cfg,
		agent:  agent,
	}

	// Hash the access key once; requests compare against the hash so the
	// plaintext never sticks around in the service.
	if cfg.AccessKey != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AccessKey), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash access key: %v", err)
		}
		svc.keyHash = hash
	}

	return svc, nil
}

// StartTunnel starts the ngrok tunnel forwarding to the local server
func (s *Service) StartTunnel(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil // Service is disabled
	}

	log.Println("Starting share tunnel...")

	var endpointOpts []ngrok.EndpointOption
	if s.config.Domain != "" {
		endpointOpts = append(endpointOpts, ngrok.WithURL(s.config.Domain))
	}

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOpts...)
	if err != nil {
		return fmt.Errorf("failed to create share tunnel: %v", err)
	}

	s.tunnel = tunnel

	log.Printf("Share tunnel active: %s", tunnel.URL().String())
	log.Printf("Forwarding to: %s", localAddress)
	if s.keyHash != nil {
		log.Printf("Access key required for tunneled requests")
	}

	return nil
}

// RequireAccessKey wraps a handler with the X-Access-Key check. Without a
// configured key the handler passes through untouched.
func (s *Service) RequireAccessKey(next http.Handler) http.Handler {
	if s == nil || s.keyHash == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Access-Key")
		if key == "" {
			http.Error(w, "Access key required", http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(key)); err != nil {
			http.Error(w, "Invalid access key", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetPublicURL returns the public URL of the tunnel
func (s *Service) GetPublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop stops the share tunnel
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}

	log.Println("Stopping share tunnel...")
	return s.tunnel.Close()
}

// Wait waits for the tunnel to close
func (s *Service) Wait() {
	if s == nil || s.tunnel == nil {
		return
	}
	<-s.tunnel.Done()
}
