package protocol

import "fmt"

// Command names one backend operation. The same identifiers are compiled into
// the gateway and both backends; a mismatch is a deployment error.
type Command string

// User commands.
const (
	CreateUser   Command = "create_user"
	FindAllUsers Command = "find_all_users"
	FindOneUser  Command = "find_one_user"
	UpdateUser   Command = "update_user"
	RemoveUser   Command = "remove_user"
)

// Product commands.
const (
	CreateProduct      Command = "create_product"
	FindAllProducts    Command = "find_all_products"
	FindOneProduct     Command = "find_one_product"
	UpdateProduct      Command = "update_product"
	UpdateProductStock Command = "update_product_stock"
	RemoveProduct      Command = "remove_product"
)

// Resource domains. Each domain is served by its own backend process.
const (
	DomainUsers    = "users"
	DomainProducts = "products"
)

// Roles for Address.Role.
const (
	RoleGateway = "gateway"
	RoleBackend = "backend"
)

// Protocol version.
const Version = 1

var catalog = map[string][]Command{
	DomainUsers:    {CreateUser, FindAllUsers, FindOneUser, UpdateUser, RemoveUser},
	DomainProducts: {CreateProduct, FindAllProducts, FindOneProduct, UpdateProduct, UpdateProductStock, RemoveProduct},
}

// Commands returns the command ids served by a domain, in catalog order.
func Commands(domain string) []Command {
	cmds := catalog[domain]
	out := make([]Command, len(cmds))
	copy(out, cmds)
	return out
}

// DomainOf returns the domain that serves cmd.
func DomainOf(cmd Command) (string, error) {
	for domain, cmds := range catalog {
		for _, c := range cmds {
			if c == cmd {
				return domain, nil
			}
		}
	}
	return "", fmt.Errorf("unknown command: %s", cmd)
}

// Known reports whether cmd is part of the catalog.
func Known(cmd Command) bool {
	_, err := DomainOf(cmd)
	return err == nil
}

func (c Command) String() string { return string(c) }
