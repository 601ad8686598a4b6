// Пакет identity — вывод непрозрачного идентификатора загрузившего
// из сетевого адреса. Идентификатор служит ключом rate-limit и аудита.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashLength — длина идентификатора в hex-символах.
// Усечение SHA-256 до 16 символов — осознанный компромисс:
// экономия размера ключа важнее строгой уникальности.
const HashLength = 16

// unknownAddress — подставляется вместо пустого/неизвестного адреса,
// чтобы идентификатор оставался стабильным.
const unknownAddress = "unknown"

// Hash детерминированно выводит идентификатор фиксированной длины
// из сырого сетевого адреса. Односторонняя функция, без ошибок:
// пустой адрес хэшируется как литерал "unknown".
func Hash(rawAddress string) string {
	if rawAddress == "" {
		rawAddress = unknownAddress
	}
	sum := sha256.Sum256([]byte(rawAddress))
	return hex.EncodeToString(sum[:])[:HashLength]
}
