// Command flowrunner drives or works a flow execution: "drive" runs the
// batch-generation loop against an execution queue, "work" leases and
// executes tasks from one.
package main

import (
	"context"
	"os"

	"github.com/flowrunner/flowrunner/engine/core"
	"github.com/flowrunner/flowrunner/pkg/logger"
)

func main() {
	ctx := context.Background()
	if err := RootCmd().ExecuteContext(ctx); err != nil {
		log := logger.FromContext(ctx)
		if cerr := core.AsError(err); cerr != nil {
			log.Error("flowrunner exited with error", "code", cerr.Code, "details", cerr.Details, "error", cerr.Error())
		} else {
			log.Error("flowrunner exited with error", "error", err)
		}
		os.Exit(1)
	}
}
