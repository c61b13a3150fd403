/*
main.go

Copyright © 2025 Code Monkey Cybersecurity
Contact: git@cybermonkey.net.au

This file is part of prov.

This software is dual-licensed under the Do No Harm License
and the GNU Affero General Public License v3 (AGPL-3.0-or-later).
You may use, modify, and distribute it under the terms of either license.

See LICENSE.agpl and LICENSE.dnh for full details.
*/
package main

import (
	"context"
	"os"

	"github.com/CodeMonkeyCybersecurity/prov/cmd"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/prov/pkg/telemetry"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func main() {
	logger.InitializeWithFallback()
	log := logger.L()
	otelzap.ReplaceGlobals(otelzap.New(log))

	dir := os.Getenv("PROV_TELEMETRY_DIR")
	if dir == "" {
		dir = "/var/log/prov"
	}
	if err := telemetry.Init("prov", dir); err != nil {
		log.Warn("Telemetry disabled", zap.Error(err))
	}
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	cmd.Execute()
}
