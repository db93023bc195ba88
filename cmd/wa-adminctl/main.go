// wa-adminctl — консольный клиент admin API 원바원.
// Вход, просмотр и удаление записей без admin UI.
package main

import (
	"os"

	"github.com/bigkaa/wonbawon-admin/internal/adminctl"
)

func main() {
	os.Exit(adminctl.Main(os.Args))
}
