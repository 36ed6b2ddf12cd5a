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
		log.Println("creating pool_liquidity table...")
		return mghelper.CreateSchema(ctx, db, &swapstore.LiquidityDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping pool_liquidity table...")
		return mghelper.DropTables(ctx, db, &swapstore.LiquidityDao{})
	})
}
