package globals

import "github.com/hashicorp/go-hclog"

var AppLogger = hclog.New(&hclog.LoggerOptions{
	Name:  "scrum-poker",
	Level: hclog.LevelFromString("DEBUG"),
})
