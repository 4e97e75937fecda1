// Package authz implements the client-side permission matrix used to gate
// UI affordances. It mirrors the authoritative matrix enforced by the
// KARDEX API and MUST NOT be treated as a security boundary: the server
// re-checks every mutating call.
package authz

import "github.com/kardexsoft/kardex-gateway/internal/domain"

// Resource is the closed set of domain object categories subject to
// access control.
type Resource string

const (
	ResourceProducts  Resource = "productos"
	ResourceSales     Resource = "ventas"
	ResourcePurchases Resource = "compras"
	ResourceCustomers Resource = "clientes"
	ResourceSuppliers Resource = "proveedores"
	ResourceReports   Resource = "reportes"
	ResourceKardex    Resource = "kardex"
	ResourceUsers     Resource = "usuarios"
	ResourceConfig    Resource = "configuracion"
	ResourceOrders    Resource = "pedidos"
	ResourceCatalog   Resource = "catalogo"
)

// Action is the closed set of operation kinds on a resource.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
)

// allResources is used to build total rows (explicit entry per resource).
var allResources = []Resource{
	ResourceProducts, ResourceSales, ResourcePurchases, ResourceCustomers,
	ResourceSuppliers, ResourceReports, ResourceKardex, ResourceUsers,
	ResourceConfig, ResourceOrders, ResourceCatalog,
}

// matrix is the static role → resource → allowed-actions table, fixed at
// build time. Every (role, resource) pair has an explicit entry; an empty
// set means deny. Unknown roles resolve to an empty row, so every lookup
// degrades to deny rather than to a missing-key case.
var matrix = map[domain.Role]map[Resource][]Action{
	domain.RoleAdmin: {
		ResourceProducts:  {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceSales:     {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove},
		ResourcePurchases: {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove},
		ResourceCustomers: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceSuppliers: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceReports:   {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceKardex:    {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceUsers:     {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceConfig:    {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
		ResourceOrders:    {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionApprove},
		ResourceCatalog:   {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	},
	domain.RoleVendor: {
		ResourceProducts:  {ActionRead},
		ResourceSales:     {ActionCreate, ActionRead, ActionUpdate},
		ResourcePurchases: {},
		ResourceCustomers: {ActionCreate, ActionRead, ActionUpdate},
		ResourceSuppliers: {},
		ResourceReports:   {ActionRead},
		ResourceKardex:    {ActionRead},
		ResourceUsers:     {},
		ResourceConfig:    {},
		ResourceOrders:    {ActionRead, ActionUpdate, ActionApprove},
		ResourceCatalog:   {ActionRead},
	},
	domain.RoleCustomer: {
		ResourceProducts:  {},
		ResourceSales:     {},
		ResourcePurchases: {},
		ResourceCustomers: {},
		ResourceSuppliers: {},
		ResourceReports:   {},
		ResourceKardex:    {},
		ResourceUsers:     {},
		ResourceConfig:    {},
		ResourceOrders:    {ActionCreate, ActionRead},
		ResourceCatalog:   {ActionRead},
	},
	domain.RoleWarehouse: {
		ResourceProducts:  {ActionRead, ActionUpdate},
		ResourceSales:     {},
		ResourcePurchases: {ActionRead},
		ResourceCustomers: {},
		ResourceSuppliers: {ActionRead},
		ResourceReports:   {},
		ResourceKardex:    {ActionCreate, ActionRead},
		ResourceUsers:     {},
		ResourceConfig:    {},
		ResourceOrders:    {ActionRead},
		ResourceCatalog:   {},
	},
	domain.RoleAccountant: {
		ResourceProducts:  {ActionRead},
		ResourceSales:     {ActionRead},
		ResourcePurchases: {ActionRead},
		ResourceCustomers: {ActionRead},
		ResourceSuppliers: {ActionRead},
		ResourceReports:   {ActionRead},
		ResourceKardex:    {ActionRead},
		ResourceUsers:     {},
		ResourceConfig:    {},
		ResourceOrders:    {},
		ResourceCatalog:   {},
	},
}
