package router

// NotAvailable stands in for absent string fields in handler output.
const NotAvailable = "N/A"

// BuiltinHandlers returns a fresh map of the default handlers. Payloads may
// arrive nested ({"project":{"name":..}}) or flat ({"projectName":..}); both
// shapes are accepted, nested first.
func BuiltinHandlers() map[Kind]Handler {
	return map[Kind]Handler{
		KindDeploymentCreated:   handleDeploymentCreated,
		KindDeploymentSucceeded: handleDeploymentSucceeded,
		KindDeploymentPromoted:  deploymentOnly("Deployment promoted event processed"),
		KindDeploymentError:     handleDeploymentError,
		KindDeploymentCancelled: deploymentOnly("Deployment cancelled event processed"),
		KindProjectCreated:      projectOnly("Project created event processed"),
		KindProjectRemoved:      projectOnly("Project removed event processed"),
		KindProjectRenamed:      handleProjectRenamed,
		KindDomainAdded:         handleDomainAdded,
	}
}

func handleDeploymentCreated(p map[string]any) (Result, error) {
	return Result{
		Message: "Deployment created event processed",
		Data: map[string]any{
			"deployment": deploymentURL(p),
			"project":    orNA(projectName(p)),
			"branch":     orNA(firstString(p, path("deployment", "branch"), path("repoBranch"))),
		},
	}, nil
}

func handleDeploymentSucceeded(p map[string]any) (Result, error) {
	return Result{
		Message: "Deployment succeeded event processed",
		Data: map[string]any{
			"deployment": deploymentURL(p),
			"duration":   first(p, path("deployment", "buildDuration"), path("buildDuration")),
		},
	}, nil
}

func handleDeploymentError(p map[string]any) (Result, error) {
	return Result{
		Message: "Deployment error event processed",
		Data: map[string]any{
			"deployment": deploymentURL(p),
			"error":      first(p, path("deployment", "errorMessage"), path("errorMessage")),
		},
	}, nil
}

func handleProjectRenamed(p map[string]any) (Result, error) {
	return Result{
		Message: "Project renamed event processed",
		Data: map[string]any{
			"oldName": first(p, path("project", "oldName"), path("oldName")),
			"newName": first(p, path("project", "name"), path("projectName"), path("newName")),
		},
	}, nil
}

func handleDomainAdded(p map[string]any) (Result, error) {
	return Result{
		Message: "Domain added event processed",
		Data: map[string]any{
			"domain":  orNA(firstString(p, path("domain", "name"), path("domainName"), path("domain"))),
			"project": orNA(projectName(p)),
		},
	}, nil
}

func deploymentOnly(message string) Handler {
	return func(p map[string]any) (Result, error) {
		return Result{
			Message: message,
			Data:    map[string]any{"deployment": deploymentURL(p)},
		}, nil
	}
}

func projectOnly(message string) Handler {
	return func(p map[string]any) (Result, error) {
		return Result{
			Message: message,
			Data:    map[string]any{"project": projectName(p)},
		}, nil
	}
}

// deploymentURL and projectName return nil when absent so the JSON carries null.
func deploymentURL(p map[string]any) any {
	return first(p, path("deployment", "url"), path("deploymentUrl"))
}

func projectName(p map[string]any) any {
	return first(p, path("project", "name"), path("projectName"))
}

func path(keys ...string) []string { return keys }

// first returns the value at the first path that resolves to a non-nil value.
func first(p map[string]any, paths ...[]string) any {
	for _, keys := range paths {
		if v, ok := lookup(p, keys...); ok && v != nil {
			return v
		}
	}
	return nil
}

// firstString is like first but only accepts non-empty strings.
func firstString(p map[string]any, paths ...[]string) any {
	for _, keys := range paths {
		if v, ok := lookup(p, keys...); ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return nil
}

func lookup(p map[string]any, keys ...string) (any, bool) {
	var cur any = p
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func orNA(v any) any {
	if v == nil {
		return NotAvailable
	}
	return v
}
