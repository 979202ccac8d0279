package server

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/kvo/std/errors"

	"main/site"
)

// Access records live in redis under access:{id}, with a per-user index
// set and a global index for the landing stats. Private upstream
// secrets are stored encrypted with the server key; they only exist in
// plaintext for the duration of a feed request.

func saveAccess(access site.Access) errors.Error {
	ctx := context.Background()

	fields := map[string]any{
		"id":       access.Id,
		"owner":    access.Owner,
		"name":     access.Name,
		"type":     access.Type,
		"school":   access.School,
		"domain":   access.Domain,
		"timezone": access.Timezone.String(),
	}
	if access.Type == site.Private {
		sealed, cerr := encrypt(aesKey, access.Password)
		if cerr != nil {
			return cerr
		}
		fields["username"] = access.Username
		fields["password"] = sealed
	} else {
		fields["classId"] = access.ClassId
	}

	err := db.HSet(ctx, "access:"+access.Id, fields).Err()
	if err != nil {
		return errors.New("cannot store access", errors.New(err.Error(), nil))
	}
	err = db.SAdd(ctx, "user:"+access.Owner+":accesses", access.Id).Err()
	if err != nil {
		return errors.New("cannot index access for user", errors.New(err.Error(), nil))
	}
	err = db.SAdd(ctx, "accesses", access.Id).Err()
	if err != nil {
		return errors.New("cannot index access", errors.New(err.Error(), nil))
	}
	return nil
}

func getAccess(id string) (site.Access, errors.Error) {
	ctx := context.Background()

	fields, err := db.HGetAll(ctx, "access:"+id).Result()
	if err != nil {
		return site.Access{}, errors.New("cannot read access", errors.New(err.Error(), nil))
	}
	if len(fields) == 0 {
		return site.Access{}, site.ErrNotFound
	}

	timezone, err := time.LoadLocation(fields["timezone"])
	if err != nil {
		return site.Access{}, errors.New("cannot load timezone "+fields["timezone"], errors.New(err.Error(), nil))
	}

	access := site.Access{
		Id:       fields["id"],
		Owner:    fields["owner"],
		Name:     fields["name"],
		Type:     fields["type"],
		School:   fields["school"],
		Domain:   fields["domain"],
		Timezone: timezone,
	}
	if access.Type == site.Private {
		if fields["username"] == "" || fields["password"] == "" {
			return site.Access{}, site.ErrIncompleteCreds
		}
		password, cerr := decrypt(aesKey, fields["password"])
		if cerr != nil {
			return site.Access{}, cerr
		}
		access.Username = fields["username"]
		access.Password = password
	} else {
		classId, err := strconv.Atoi(fields["classId"])
		if err != nil {
			return site.Access{}, site.ErrIncompleteCreds
		}
		access.ClassId = classId
	}
	return access, nil
}

func listAccesses(owner string) ([]site.Access, errors.Error) {
	ctx := context.Background()

	ids, err := db.SMembers(ctx, "user:"+owner+":accesses").Result()
	if err != nil {
		return nil, errors.New("cannot list accesses", errors.New(err.Error(), nil))
	}

	accesses := make([]site.Access, 0, len(ids))
	for _, id := range ids {
		access, aerr := getAccess(id)
		if aerr != nil {
			return nil, aerr
		}
		accesses = append(accesses, access)
	}
	return accesses, nil
}

// deleteAccess removes an access, refusing to touch accesses the caller
// does not own.
func deleteAccess(owner, id string) errors.Error {
	access, aerr := getAccess(id)
	if aerr != nil {
		return aerr
	}
	if access.Owner != owner {
		return site.ErrNotFound
	}

	ctx := context.Background()
	err := db.Del(ctx, "access:"+id).Err()
	if err != nil {
		return errors.New("cannot delete access", errors.New(err.Error(), nil))
	}
	err = db.SRem(ctx, "user:"+owner+":accesses", id).Err()
	if err != nil {
		return errors.New("cannot unindex access for user", errors.New(err.Error(), nil))
	}
	err = db.SRem(ctx, "accesses", id).Err()
	if err != nil {
		return errors.New("cannot unindex access", errors.New(err.Error(), nil))
	}
	return nil
}
