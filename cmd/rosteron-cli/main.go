package main

import (
	"context"

	"rosteron/cmd/rosteron-cli/commands"
	"rosteron/lib/serviceutil"
	"rosteron/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext(context.Background())

	tel, err := telemetry.SetupFromEnv(ctx, "rosteron-cli")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer tel.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
