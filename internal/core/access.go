package core

// RoleForNewUser is the role granted on first profile save: the first
// registered user administers the instance.
func RoleForNewUser(adminExists bool) UserRole {
	if adminExists {
		return RoleUser
	}
	return RoleAdmin
}

// CanUseLedger reports whether role may read or change finance data.
func (r UserRole) CanUseLedger() bool {
	return r == RoleAdmin || r == RoleUser
}

// CheckTransactionCategory verifies that the transaction type agrees with
// its category.
func CheckTransactionCategory(t Transaction, c *Category) error {
	if c == nil {
		return ErrNotFound
	}
	if c.Type != t.Type {
		return ErrCategoryMismatch
	}
	return nil
}
