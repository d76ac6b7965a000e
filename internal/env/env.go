package env

import "github.com/thatsimonsguy/eight-presence/internal/config"

// Cfg is the loaded configuration, shared with package-level services.
var Cfg *config.Config
