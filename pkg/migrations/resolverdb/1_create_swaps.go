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
		log.Println("creating swaps table...")
		if err := mghelper.CreateSchema(ctx, db, &swapstore.SwapDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &swapstore.SwapDao{}, "status", "user_address", "timelock")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping swaps table...")
		return mghelper.DropTables(ctx, db, &swapstore.SwapDao{})
	})
}
