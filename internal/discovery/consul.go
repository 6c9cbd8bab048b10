package discovery

import (
	"fmt"
	"os"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

// Registrar announces this replica to Consul so gateways can route to it.
type Registrar struct {
	client *consulapi.Client
	id     string
	reg    *consulapi.AgentServiceRegistration
	logger *zap.SugaredLogger
}

func NewRegistrar(addr, name, host string, port int, logger *zap.SugaredLogger) (*Registrar, error) {
	cfg := consulapi.DefaultConfig()
	cfg.Address = addr
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if host == "" {
		host, _ = os.Hostname()
	}
	reg := registration(name, host, port)
	return &Registrar{client: client, id: reg.ID, reg: reg, logger: logger}, nil
}

func registration(name, host string, port int) *consulapi.AgentServiceRegistration {
	return &consulapi.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s-%d", name, host, port),
		Name:    name,
		Address: host,
		Port:    port,
		Tags:    []string{"chat", "mailbox"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", host, port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

func (r *Registrar) Register() error {
	if err := r.client.Agent().ServiceRegister(r.reg); err != nil {
		return fmt.Errorf("consul register %s: %w", r.id, err)
	}
	r.logger.Infow("registered with consul", "id", r.id)
	return nil
}

func (r *Registrar) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.id); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.id, err)
	}
	return nil
}
