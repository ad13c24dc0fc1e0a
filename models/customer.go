package models

import (
	"context"
	"time"

	"bitbucket.org/mmagrifoods/millstock_backend/config"
	"bitbucket.org/mmagrifoods/millstock_backend/utils"
)

type Customer struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	ContactName string    `gorm:"size:100" json:"contact_name"`
	Phone       string    `gorm:"size:20" json:"phone"`
	Address     string    `gorm:"size:250" json:"address"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name        string `json:"name" binding:"required"`
	ContactName string `json:"contact_name"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := utils.ValidateUnique[Customer](ctx, businessId, "name", input.Name, 0); err != nil {
		return nil, err
	}

	customer := Customer{
		BusinessId:  businessId,
		Name:        input.Name,
		ContactName: input.ContactName,
		Phone:       input.Phone,
		Address:     input.Address,
		IsActive:    utils.NewTrue(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func UpdateCustomer(ctx context.Context, id int, input *NewCustomer) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	if err := utils.ValidateUnique[Customer](ctx, businessId, "name", input.Name, id); err != nil {
		return nil, err
	}

	customer, err := utils.FetchModel[Customer](ctx, businessId, id)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(customer).Updates(map[string]interface{}{
		"Name":        input.Name,
		"ContactName": input.ContactName,
		"Phone":       input.Phone,
		"Address":     input.Address,
	}).Error
	if err != nil {
		return nil, err
	}
	return customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchModel[Customer](ctx, businessId, id)
}

func ListCustomers(ctx context.Context) ([]*Customer, error) {
	businessId, ok := utils.GetBusinessIdFromContext(ctx)
	if !ok || businessId == "" {
		return nil, ErrBusinessIdRequired
	}
	return utils.FetchAllModels[Customer](ctx, businessId)
}
