package resolverdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/swapsage/resolver/pkg/pgutil/migrations"
	"github.com/swapsage/resolver/pkg/swapstore"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating orphaned_htlcs table...")
		if err := mghelper.CreateSchema(ctx, db, &swapstore.OrphanDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &swapstore.OrphanDao{}, "timelock")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping orphaned_htlcs table...")
		return mghelper.DropTables(ctx, db, &swapstore.OrphanDao{})
	})
}
