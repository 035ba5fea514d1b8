// ecfctl es la herramienta de línea de comandos para firmar, enviar y consultar e-CF ante la DGII.
package main

import "github.com/jhoicas/ecf-dgii/internal/cli"

func main() {
	cli.Execute()
}
