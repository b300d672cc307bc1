package main

func (cli *commandLine) migrate(args []string) error {
	return cli.migrator(args[0], args[1:]...)
}
