package main

// version is stamped by the release build; the default marks a source build.
var version = "0.1.0-dev"

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate("mend {{.Version}}\n")
}
