package main

import (
	"os/user"
	"strconv"
)

// userLookup resolves a username or numeric uid string to a uid,
// matching how the original implementation's drop_privileges accepts
// either form.
func userLookup(name string) (int, error) {
	if uid, err := strconv.Atoi(name); err == nil {
		return uid, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(u.Uid)
}

// groupLookup resolves a group name or numeric gid string to a gid.
func groupLookup(name string) (int, error) {
	if gid, err := strconv.Atoi(name); err == nil {
		return gid, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(g.Gid)
}
