package app

import (
	"Fusor/cmd/fusor/app/options"
	"Fusor/pkg/util/app"

	"github.com/spf13/cobra"
)

const commandDesc = `fusor records instrument telemetry from an acquisition server into a
log file and browses such logs, live or historical.`

func New(basename string) *app.App {
	application := app.NewApp(
		basename,
		app.WithDescription(commandDesc),
		app.WithConfigFile(),
	)

	recordOpts := options.NewRecordOptions()
	playOpts := options.NewPlayOptions()
	generateOpts := options.NewGenerateOptions()
	inspectOpts := options.NewInspectOptions()
	exportOpts := options.NewExportOptions()

	application.AddCommands(
		app.NewCommand("record", "Record live telemetry from a server",
			app.WithCommandOptions(recordOpts),
			app.WithCommandArgs(cobra.NoArgs),
			app.WithCommandRunFunc(runRecord(recordOpts)),
		),
		app.NewCommand("play", "Browse a recorded log",
			app.WithCommandOptions(playOpts),
			app.WithCommandLong(playHelp),
			app.WithCommandArgs(cobra.NoArgs),
			app.WithCommandRunFunc(runPlay(playOpts)),
		),
		app.NewCommand("generate", "Write a synthetic test log",
			app.WithCommandOptions(generateOpts),
			app.WithCommandArgs(cobra.NoArgs),
			app.WithCommandRunFunc(runGenerate(generateOpts)),
		),
		app.NewCommand("inspect", "Sanity scan a log and list its records",
			app.WithCommandOptions(inspectOpts),
			app.WithCommandArgs(cobra.NoArgs),
			app.WithCommandRunFunc(runInspect(inspectOpts)),
		),
		app.NewCommand("export", "Export records as a compressed CBOR stream",
			app.WithCommandOptions(exportOpts),
			app.WithCommandArgs(cobra.NoArgs),
			app.WithCommandRunFunc(runExport(exportOpts)),
		),
	)
	return application
}
