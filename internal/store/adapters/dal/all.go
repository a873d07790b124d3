// Package dal importa todos los adapters para auto-registro.
// Importar este paquete en main.go para habilitar todos los drivers.
//
// Uso:
//
//	import _ "github.com/dropDatabas3/grantkeeper/internal/store/adapters/dal"
package dal

import (
	_ "github.com/dropDatabas3/grantkeeper/internal/store/adapters/memory"
	_ "github.com/dropDatabas3/grantkeeper/internal/store/adapters/mysql"
	_ "github.com/dropDatabas3/grantkeeper/internal/store/adapters/pg"
)
