package dockerlocal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/terrazzo-io/tzctl/pkg/provisioner"
)

func init() {
	provisioner.Register("docker", func() (provisioner.Adapter, error) {
		return NewAdapter()
	})
}

// Adapter provisions an environment's stack as local Docker containers.
type Adapter struct {
	docker *client.Client
}

// NewAdapter creates an adapter connected to the local Docker daemon.
func NewAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{docker: cli}, nil
}

func (a *Adapter) Name() string {
	return "docker"
}

func (a *Adapter) Plan(ctx context.Context, req provisioner.Request) (*provisioner.PlanResult, error) {
	stack, err := a.loadStack(req)
	if err != nil {
		return nil, err
	}

	result := &provisioner.PlanResult{}
	project := projectName(req)

	for _, name := range stack.ServiceNames() {
		svc := stack.Services[name]
		containerName := ContainerName(project, req.Environment, name)

		id, err := a.findContainer(ctx, containerName)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect %s: %w", containerName, err)
		}

		switch {
		case id == "":
			result.Summary.Add++
			result.PlannedChanges = append(result.PlannedChanges, provisioner.PlannedChange{
				Address:      "docker_container." + name,
				Actions:      []string{"create"},
				ProviderName: "docker",
				ResourceType: "docker_container",
			})
		case !a.containerMatches(ctx, id, svc):
			result.Summary.Change++
			result.Drift = true
			result.PlannedChanges = append(result.PlannedChanges, provisioner.PlannedChange{
				Address:      "docker_container." + name,
				Actions:      []string{"delete", "create"},
				ProviderName: "docker",
				ResourceType: "docker_container",
			})
		default:
			running, err := a.isRunning(ctx, id)
			if err != nil {
				return nil, err
			}
			if !running {
				result.Drift = true
				result.Summary.Change++
				result.PlannedChanges = append(result.PlannedChanges, provisioner.PlannedChange{
					Address:      "docker_container." + name,
					Actions:      []string{"update"},
					ProviderName: "docker",
					ResourceType: "docker_container",
				})
			}
		}
	}

	// Containers from a previous stack revision that no longer appear in
	// the declaration are planned away.
	orphans, err := a.orphanedContainers(ctx, project, req.Environment, stack)
	if err != nil {
		return nil, err
	}
	for _, name := range orphans {
		result.Summary.Destroy++
		result.PlannedChanges = append(result.PlannedChanges, provisioner.PlannedChange{
			Address:      "docker_container." + name,
			Actions:      []string{"delete"},
			ProviderName: "docker",
			ResourceType: "docker_container",
		})
	}

	if result.Drift {
		result.Status = provisioner.StatusDrifted
	} else {
		result.Status = provisioner.StatusHealthy
	}
	return result, nil
}

func (a *Adapter) Apply(ctx context.Context, req provisioner.Request) (*provisioner.ApplyResult, error) {
	stack, err := a.loadStack(req)
	if err != nil {
		return nil, err
	}

	result := &provisioner.ApplyResult{Status: provisioner.StatusHealthy}
	project := projectName(req)

	networkID, err := a.ensureNetwork(ctx, NetworkName(project, req.Environment))
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	_ = networkID

	for _, name := range stack.ServiceNames() {
		svc := stack.Services[name]
		containerName := ContainerName(project, req.Environment, name)

		id, err := a.findContainer(ctx, containerName)
		if err != nil {
			return nil, err
		}

		if id != "" {
			if a.containerMatches(ctx, id, svc) {
				if running, err := a.isRunning(ctx, id); err == nil && running {
					result.Logs = append(result.Logs, fmt.Sprintf("%s: up to date", containerName))
					continue
				}
			}
			if err := a.removeContainer(ctx, id); err != nil {
				result.Errors = append(result.Errors, provisioner.Diagnostic{
					Code:    "DOCKER_REMOVE_FAILED",
					Message: fmt.Sprintf("%s: %v", containerName, err),
				})
				continue
			}
			result.Summary.Change++
		} else {
			result.Summary.Add++
		}

		if err := a.runContainer(ctx, containerName, NetworkName(project, req.Environment), svc); err != nil {
			result.Errors = append(result.Errors, provisioner.Diagnostic{
				Code:    "DOCKER_RUN_FAILED",
				Message: fmt.Sprintf("%s: %v", containerName, err),
			})
			continue
		}
		result.Logs = append(result.Logs, fmt.Sprintf("%s: started", containerName))
	}

	// Remove containers the stack no longer declares.
	orphans, err := a.orphanedContainers(ctx, project, req.Environment, stack)
	if err != nil {
		return nil, err
	}
	for _, name := range orphans {
		containerName := ContainerName(project, req.Environment, name)
		id, err := a.findContainer(ctx, containerName)
		if err != nil || id == "" {
			continue
		}
		if err := a.removeContainer(ctx, id); err != nil {
			result.Errors = append(result.Errors, provisioner.Diagnostic{
				Code:    "DOCKER_REMOVE_FAILED",
				Message: fmt.Sprintf("%s: %v", containerName, err),
			})
			continue
		}
		result.Summary.Destroy++
		result.Logs = append(result.Logs, fmt.Sprintf("%s: removed", containerName))
	}

	if len(result.Errors) > 0 {
		result.Status = provisioner.StatusFailed
	}
	return result, nil
}

func (a *Adapter) Destroy(ctx context.Context, req provisioner.Request) (*provisioner.DestroyResult, error) {
	stack, err := a.loadStack(req)
	if err != nil {
		return nil, err
	}

	result := &provisioner.DestroyResult{Status: provisioner.StatusUnknown}
	project := projectName(req)

	for _, name := range stack.ServiceNames() {
		containerName := ContainerName(project, req.Environment, name)
		id, err := a.findContainer(ctx, containerName)
		if err != nil {
			return nil, err
		}
		if id == "" {
			continue
		}
		if err := a.removeContainer(ctx, id); err != nil {
			result.Errors = append(result.Errors, provisioner.Diagnostic{
				Code:    "DOCKER_REMOVE_FAILED",
				Message: fmt.Sprintf("%s: %v", containerName, err),
			})
			continue
		}
		result.Summary.Destroy++
		result.Logs = append(result.Logs, fmt.Sprintf("%s: removed", containerName))
	}

	if err := a.removeNetwork(ctx, NetworkName(project, req.Environment)); err != nil {
		result.Warnings = append(result.Warnings, provisioner.Diagnostic{
			Code:    "DOCKER_NETWORK_REMOVE_FAILED",
			Message: err.Error(),
		})
	}

	if len(result.Errors) > 0 {
		result.Status = provisioner.StatusFailed
	}
	return result, nil
}

func (a *Adapter) Report(ctx context.Context, req provisioner.Request) (*provisioner.ReportResult, error) {
	stack, err := a.loadStack(req)
	if err != nil {
		return nil, err
	}

	result := &provisioner.ReportResult{}
	project := projectName(req)

	present := 0
	healthy := 0
	for _, name := range stack.ServiceNames() {
		containerName := ContainerName(project, req.Environment, name)
		id, err := a.findContainer(ctx, containerName)
		if err != nil {
			return nil, err
		}
		if id == "" {
			result.Logs = append(result.Logs, fmt.Sprintf("%s: absent", containerName))
			continue
		}
		present++

		running, err := a.isRunning(ctx, id)
		if err != nil {
			return nil, err
		}
		if running && a.containerMatches(ctx, id, stack.Services[name]) {
			healthy++
			result.Logs = append(result.Logs, fmt.Sprintf("%s: running", containerName))
		} else {
			result.Logs = append(result.Logs, fmt.Sprintf("%s: degraded", containerName))
		}
	}

	total := len(stack.Services)
	switch {
	case present == 0:
		result.Status = provisioner.StatusUnknown
	case healthy == total:
		result.Status = provisioner.StatusHealthy
	default:
		result.Status = provisioner.StatusDrifted
		result.Drift = true
	}
	return result, nil
}

// loadStack reads and parses the workspace's stack.yml.
func (a *Adapter) loadStack(req provisioner.Request) (*Stack, error) {
	data, err := os.ReadFile(filepath.Join(req.Workspace, StackFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", StackFileName, err)
	}
	return ParseStack(data)
}

func projectName(req provisioner.Request) string {
	return filepath.Base(req.ProjectPath)
}

func (a *Adapter) findContainer(ctx context.Context, name string) (string, error) {
	containers, err := a.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+name+"$")),
	})
	if err != nil {
		return "", err
	}
	for _, c := range containers {
		for _, n := range c.Names {
			if n == "/"+name || n == name {
				return c.ID, nil
			}
		}
	}
	return "", nil
}

func (a *Adapter) isRunning(ctx context.Context, id string) (bool, error) {
	info, err := a.docker.ContainerInspect(ctx, id)
	if err != nil {
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}

// containerMatches reports whether a running container already satisfies the
// service definition: same image and environment. Host ports are not
// compared because dynamically-assigned ones always differ.
func (a *Adapter) containerMatches(ctx context.Context, id string, svc Service) bool {
	info, err := a.docker.ContainerInspect(ctx, id)
	if err != nil {
		return false
	}

	desired, err := a.docker.ImageInspect(ctx, svc.Image)
	if err != nil {
		return false
	}
	if info.Image != desired.ID {
		return false
	}

	current := make(map[string]string)
	for _, e := range info.Config.Env {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			current[parts[0]] = parts[1]
		}
	}
	for k, v := range svc.Environment {
		if current[k] != v {
			return false
		}
	}
	return true
}

func (a *Adapter) runContainer(ctx context.Context, name, networkName string, svc Service) error {
	if _, err := a.docker.ImageInspect(ctx, svc.Image); err != nil {
		reader, err := a.docker.ImagePull(ctx, svc.Image, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", svc.Image, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	env := make([]string, 0, len(svc.Environment))
	for k, v := range svc.Environment {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}
	for _, entry := range svc.Ports {
		hostPort, containerPort, err := parsePort(entry)
		if err != nil {
			return err
		}
		port := nat.Port(fmt.Sprintf("%d/tcp", containerPort))
		exposedPorts[port] = struct{}{}
		binding := nat.PortBinding{}
		if hostPort > 0 {
			binding.HostPort = fmt.Sprintf("%d", hostPort)
		}
		portBindings[port] = []nat.PortBinding{binding}
	}

	config := &container.Config{
		Image:        svc.Image,
		Cmd:          svc.Command,
		Env:          env,
		ExposedPorts: exposedPorts,
	}
	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
	}
	if svc.Restart != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(svc.Restart)}
	}
	networkConfig := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			networkName: {},
		},
	}

	resp, err := a.docker.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, name)
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = a.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (a *Adapter) removeContainer(ctx context.Context, id string) error {
	return a.docker.ContainerRemove(ctx, id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	})
}

// orphanedContainers returns service names of containers carrying this
// environment's name prefix that the stack no longer declares.
func (a *Adapter) orphanedContainers(ctx context.Context, project, environment string, stack *Stack) ([]string, error) {
	prefix := ContainerName(project, environment, "")
	containers, err := a.docker.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/"+prefix)),
	})
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, c := range containers {
		for _, n := range c.Names {
			name := strings.TrimPrefix(n, "/")
			if !strings.HasPrefix(name, prefix) {
				continue
			}
			service := strings.TrimPrefix(name, prefix)
			if _, ok := stack.Services[service]; !ok {
				orphans = append(orphans, service)
			}
		}
	}
	return orphans, nil
}

func (a *Adapter) ensureNetwork(ctx context.Context, name string) (string, error) {
	networks, err := a.docker.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", err
	}
	for _, n := range networks {
		if n.Name == name {
			return n.ID, nil
		}
	}

	resp, err := a.docker.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (a *Adapter) removeNetwork(ctx context.Context, name string) error {
	err := a.docker.NetworkRemove(ctx, name)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}

// Ensure we implement the Adapter interface
var _ provisioner.Adapter = (*Adapter)(nil)
