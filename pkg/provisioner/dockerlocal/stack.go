// Package dockerlocal implements a provisioning adapter that runs an
// environment's services as local Docker containers, declared in a stack.yml
// file inside the driver entry.
package dockerlocal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// StackFileName is the driver's declaration file.
const StackFileName = "stack.yml"

// Stack is the parsed stack.yml document.
type Stack struct {
	// Services maps service name to its container definition.
	Services map[string]Service `yaml:"services"`

	// Outputs declares the identifiers this driver produces. Values may
	// reference tokens already substituted during materialization.
	Outputs map[string]Output `yaml:"outputs,omitempty"`
}

// Service defines one container.
type Service struct {
	Image       string            `yaml:"image"`
	Command     []string          `yaml:"command,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`

	// Ports entries are "host:container" or "container" (random host port).
	Ports []string `yaml:"ports,omitempty"`

	Restart string `yaml:"restart,omitempty"`
}

// Output declares a produced value.
type Output struct {
	Value     string `yaml:"value,omitempty"`
	Sensitive bool   `yaml:"sensitive,omitempty"`
}

// ParseStack parses and validates a stack.yml document.
func ParseStack(data []byte) (*Stack, error) {
	stack := &Stack{}
	if err := yaml.Unmarshal(data, stack); err != nil {
		return nil, fmt.Errorf("invalid stack file: %w", err)
	}

	if len(stack.Services) == 0 {
		return nil, fmt.Errorf("stack file declares no services")
	}
	for name, svc := range stack.Services {
		if svc.Image == "" {
			return nil, fmt.Errorf("service %q: image is required", name)
		}
		for _, port := range svc.Ports {
			if _, _, err := parsePort(port); err != nil {
				return nil, fmt.Errorf("service %q: %w", name, err)
			}
		}
	}

	return stack, nil
}

// ServiceNames returns the declared service names, sorted for deterministic
// iteration.
func (s *Stack) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for name := range s.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContainerName is the deterministic container name for a service, carrying
// the project and environment so parallel environments never collide.
func ContainerName(project, environment, service string) string {
	return fmt.Sprintf("tz-%s-%s-%s", project, environment, service)
}

// NetworkName is the per-environment bridge network name.
func NetworkName(project, environment string) string {
	return fmt.Sprintf("tz-%s-%s", project, environment)
}

// parsePort splits a "host:container" or "container" port entry. A zero host
// port means Docker assigns one.
func parsePort(entry string) (hostPort, containerPort int, err error) {
	parts := strings.Split(entry, ":")
	switch len(parts) {
	case 1:
		containerPort, err = strconv.Atoi(parts[0])
	case 2:
		hostPort, err = strconv.Atoi(parts[0])
		if err == nil {
			containerPort, err = strconv.Atoi(parts[1])
		}
	default:
		return 0, 0, fmt.Errorf("invalid port %q", entry)
	}
	if err != nil || containerPort <= 0 {
		return 0, 0, fmt.Errorf("invalid port %q", entry)
	}
	return hostPort, containerPort, nil
}
